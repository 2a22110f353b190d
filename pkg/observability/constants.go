package observability

const (
	AttrStoryID         = "inkloom.story_id"
	AttrBranchID        = "inkloom.branch_id"
	AttrFragmentID      = "inkloom.fragment_id"
	AttrGenerationMode  = "inkloom.generation_mode"
	AttrProviderID      = "inkloom.provider_id"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrLLMFinishReason = "llm.finish_reason"
	AttrToolName        = "tool.name"
	AttrToolCallID      = "tool.call_id"
	AttrChainLength     = "inkloom.chain_length"
	AttrErrorType       = "error.type"
	AttrEventID         = "inkloom.event_id"

	SpanGeneration    = "generation.run"
	SpanToolExecution = "generation.tool_execution"
	SpanLibrarianRun  = "librarian.run"
	SpanFragmentWrite = "fragment.write"

	DefaultServiceName  = "inkloom-core"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
