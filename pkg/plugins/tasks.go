package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Task struct {
	ID          int        `json:"id"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskStore keeps tasks in one JSON file, rewritten on every change.
type TaskStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewTaskStore(path string) *TaskStore {
	if path == "" {
		path = filepath.Join("data", "tasks.json")
	}
	return &TaskStore{path: path, now: time.Now}
}

func (s *TaskStore) Add(description string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.load()
	if err != nil {
		return Task{}, err
	}
	id := 1
	for _, t := range tasks {
		if t.ID >= id {
			id = t.ID + 1
		}
	}
	task := Task{ID: id, Description: description, CreatedAt: s.now()}
	tasks = append(tasks, task)
	return task, s.save(tasks)
}

func (s *TaskStore) List() ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Complete marks a task done. found is false when no task has that id.
func (s *TaskStore) Complete(id int) (task Task, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.load()
	if err != nil {
		return Task{}, false, err
	}
	for i := range tasks {
		if tasks[i].ID != id {
			continue
		}
		if !tasks[i].Completed {
			now := s.now()
			tasks[i].Completed = true
			tasks[i].CompletedAt = &now
		}
		return tasks[i], true, s.save(tasks)
	}
	return Task{}, false, nil
}

func (s *TaskStore) load() ([]Task, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return tasks, nil
}

func (s *TaskStore) save(tasks []Task) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

type Tasks struct {
	store *TaskStore
}

func NewTasks(store *TaskStore) *Tasks { return &Tasks{store: store} }

func (*Tasks) Name() string { return "tasks" }

func (p *Tasks) Tools() []Tool {
	return []Tool{
		{
			Tool: llmTool("add_task", "Create a new task with the given description.", []string{"description"}, map[string]any{
				"description": map[string]any{"type": "string"},
			}),
			Handler: p.add,
		},
		{
			Tool:    llmTool("get_tasks", "List all saved tasks.", []string{}, map[string]any{}),
			Handler: p.list,
		},
		{
			Tool: llmTool("complete_task", "Mark a task as completed by its ID.", []string{"id"}, map[string]any{
				"id": map[string]any{"type": "integer"},
			}),
			Handler: p.complete,
		},
	}
}

func (p *Tasks) add(ctx context.Context, args map[string]any) (string, error) {
	desc, err := requiredString(args, "description")
	if err != nil {
		return "", err
	}
	task, err := p.store.Add(desc)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Task added: #%d %s", task.ID, task.Description), nil
}

func (p *Tasks) list(ctx context.Context, args map[string]any) (string, error) {
	tasks, err := p.store.List()
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No tasks found.", nil
	}
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		lines = append(lines, fmt.Sprintf("- [%s] #%d %s (created: %s)", mark, t.ID, t.Description, t.CreatedAt.Format("2006-01-02 15:04")))
	}
	return strings.Join(lines, "\n"), nil
}

func (p *Tasks) complete(ctx context.Context, args map[string]any) (string, error) {
	n, err := requiredNumber(args, "id")
	if err != nil {
		return "", err
	}
	id := int(n)
	task, found, err := p.store.Complete(id)
	if err != nil {
		return "", err
	}
	if !found {
		return fmt.Sprintf("Task with ID %d not found.", id), nil
	}
	return fmt.Sprintf("Task completed: %s", task.Description), nil
}
