package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonConfigMissing ReasonCode = "config_missing"
	ReasonConfigInvalid ReasonCode = "config_invalid"

	ReasonAudioSource ReasonCode = "audio_source"

	ReasonSTTExit       ReasonCode = "stt_exit"
	ReasonSTTTranscribe ReasonCode = "stt_transcribe"
	ReasonSTTRateLimit  ReasonCode = "stt_rate_limit"

	ReasonTTSSpeak ReasonCode = "tts_speak"

	ReasonLLMGenerate    ReasonCode = "llm_generate"
	ReasonLLMRateLimit   ReasonCode = "llm_rate_limit"
	ReasonLLMCircuitOpen ReasonCode = "llm_circuit_open"

	ReasonToolCall      ReasonCode = "tool_call"
	ReasonSearchRequest ReasonCode = "search_request"
	ReasonPDFLoad       ReasonCode = "pdf_load"

	ReasonTranscriptSave ReasonCode = "transcript_save"
	ReasonTranscriptLoad ReasonCode = "transcript_load"
)
