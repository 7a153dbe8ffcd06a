package constant

const (
	WorkerSystemPrompt = `You are a worker agent responsible for analyzing a portion of a document.
Your task is to identify key information related to the user's query and provide clear, concise analysis.`

	ManagerSystemPrompt = `You are a manager agent responsible for synthesizing information from multiple workers.
Your task is to combine their analyses into a coherent, comprehensive response that directly answers the user's query.`

	// NoPreviousContext stands in for the cognitive unit on the first chunk.
	NoPreviousContext = "None"

	// Args: query, chunk text, previous cognitive unit
	WorkerChunkPrompt = `Process the following document chunk and answer the following query, considering the previous cognitive unit if provided.

Query: %s

Document chunk:
%s

Previous Cognitive Unit: %s

Provide a concise analysis focusing only on relevant information for the query, building upon previous context if available.
Do not restate what the previous cognitive unit already covers. If this chunk is irrelevant to the query, carry the previous cognitive unit forward unchanged.`

	// Args: query, numbered worker analyses
	ManagerSynthesisPrompt = `Based on the following analyses from worker agents, provide a comprehensive answer to the query.

Query: %s

Worker Analyses:
%s

Provide a clear, well-organized final summary that directly addresses the query. Merge overlapping points and drop repeated information.`

	// Args: query, current context, new worker analysis
	ManagerUpdateContextPrompt = `You maintain a running summary of everything known so far about a document that is relevant to a query.

Query: %s

Current summary:
%s

New analysis from the latest document chunk:
%s

Rewrite the summary so it integrates the new analysis. Resolve contradictions in favour of the more specific information, drop anything unrelated to the query, and return only the updated summary.`
)
