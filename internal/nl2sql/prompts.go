package nl2sql

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/dbchat/dbchat/internal/conversation"
)

var queryPrompt = template.Must(template.New("query").Parse(`
Based on the provided table schema and the user's question, generate a valid SQL query.
Follow these rules for specific question types:
1. If the question is about the **number of columns**, use INFORMATION_SCHEMA to get the count of columns in the specified table.
2. If the question is about **column names**, use INFORMATION_SCHEMA to retrieve the column names of the specified table.
3. If the question is about the **number of records (rows)**, generate a query using COUNT(*) to count the rows in the table.
4. For general **schema-related questions**, provide queries to fetch metadata about tables, columns, or database structure.
5. For all other data-specific questions, generate a query that retrieves the required data directly from the table.
Ensure the SQL query directly answers the user's question without any additional text or explanation.
Schema: {{.Schema}}
Question: {{.Question}}
SQL Query:
`))

var answerPrompt = template.Must(template.New("answer").Parse(`
You are an exceptional assistant known for delivering accurate and precise answers.
Based on the provided schema, the user's question, the SQL query, and the "SQL response", generate a accurate straight forward natural language answer.
kindly generate the answer that exactly reflects the SQL response.
Schema: {{.Schema}}
Question: {{.Question}}
SQL Query: {{.Query}}
SQL Response: {{.Response}}

Answer:
`))

// queryPromptData carries History so the template can start using it
// without changing callers. The query template does not render it.
type queryPromptData struct {
	Schema   string
	Question string
	History  []conversation.Turn
}

type answerPromptData struct {
	Schema   string
	Question string
	Query    string
	Response string
	History  []conversation.Turn
}

func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}
