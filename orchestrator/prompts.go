package orchestrator

import (
	"fmt"
	"strings"
)

// analystSystemPrompt frames the model as a data analyst and pins the two
// response formats the parser understands.
const analystSystemPrompt = `You are a highly capable data analyst agent.

You will receive a primary question and optionally additional files
(CSV, JSON, Parquet, Excel, SQLite databases, plain text).

Your objectives:
1. Read and interpret the question carefully.
2. If the question contains URLs, retrieve and parse their content with
   appropriate Python libraries (requests + BeautifulSoup for static HTML,
   httpx for APIs). Keep the approach domain-agnostic.
3. Handle any data source present in the files.
4. Break the task into subtasks; when a subtask needs code, write fully
   runnable Python 3.11 code.
5. After running code and processing results, compose the final answer.

IMPORTANT: you must respond with exactly ONE of these two JSON formats and
nothing else:

To give the final answer:
{"final answer": <the actual answer in the correct format>}

To request code execution:
{"code": <the code to run>, "analysis": <your progress so far>}

Do not add explanations, conclusions, or text outside the JSON object.`

// BuildInitialPrompt assembles the first prompt of an attempt from the
// question and the staged file names.
func BuildInitialPrompt(question string, files []string) string {
	var b strings.Builder
	b.WriteString(analystSystemPrompt)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nFiles available for context:\n")
	if len(files) == 0 {
		b.WriteString("(none)")
	} else {
		for _, f := range files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

// BuildFeedbackPrompt re-presents the original question plus the full
// iteration history after a code execution.
func BuildFeedbackPrompt(original string, history []string) string {
	return fmt.Sprintf(`Original Question:
%s

Here is the full history of attempts so far:
%s

Now, based on this history, please either:
1. Provide the final answer in JSON format: {"final answer": ...}
2. OR, if more work is needed, provide only the next incremental code block
   in the format: {"code": <code to be executed>, "analysis": <brief
   description of further analysis made by you>}

Try to construct efficient code at once, and if the received input is
satisfactory, give the final answer at the earliest in the format above.`,
		original, strings.Join(history, "\n\n---\n\n"))
}

// BuildContinuationPrompt nudges the model back to one of the two accepted
// formats after an unclassifiable reply.
func BuildContinuationPrompt(original, previous string) string {
	return fmt.Sprintf("%s\n\nPrevious response:\n%s\n\nPlease provide the final answer or executable code.",
		original, previous)
}
