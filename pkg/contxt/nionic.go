package contxt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Nionic sends GraphQL documents to the nionic platform API. Building the
// documents is left to the caller.
type Nionic struct {
	client *RequestClient
}

func NewNionic(client *RequestClient) *Nionic {
	return &Nionic{client: client}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// GraphQLErrors is returned when the response carries an errors array.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Message
	}
	return "contxt: graphql: " + strings.Join(msgs, "; ")
}

// Query posts query with variables and decodes the data member into out.
func (n *Nionic) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	if strings.TrimSpace(query) == "" {
		return &ValidationError{Field: "query"}
	}

	var resp graphQLResponse
	if err := n.client.Post(ctx, "/graphql", graphQLRequest{Query: query, Variables: variables}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return GraphQLErrors(resp.Errors)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode graphql data: %w", err)
	}
	return nil
}
