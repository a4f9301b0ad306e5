package client

import (
	"encoding/json"
	"fmt"
)

// Document is the indexed document summary returned by the API.
type Document struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Pages      int    `json:"pages"`
	Characters int    `json:"characters"`
	Chunks     int    `json:"chunks"`
	UploadedAt string `json:"uploaded_at"`
	IndexedAt  string `json:"indexed_at"`
}

// Session is a session as returned by the API.
type Session struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	ModelLabel   string    `json:"model_label"`
	Turns        int       `json:"turns"`
	CreatedAt    string    `json:"created_at"`
	LastActiveAt string    `json:"last_active_at"`
	Document     *Document `json:"document,omitempty"`
}

// Source is one retrieved chunk backing an answer.
type Source struct {
	ChunkIndex int     `json:"chunk_index"`
	Page       int     `json:"page"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float32 `json:"score"`
	Content    string  `json:"content"`
}

// Answer is the reply to a question.
type Answer struct {
	Question           string   `json:"question"`
	StandaloneQuestion string   `json:"standalone_question,omitempty"`
	Answer             string   `json:"answer"`
	Model              string   `json:"model"`
	Sources            []Source `json:"sources"`
}

// Turn is one entry of the conversation history.
type Turn struct {
	Position  int    `json:"position"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
}

// History is one page of conversation turns.
type History struct {
	Turns   []Turn `json:"turns"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// UploadURL is a presigned staging location.
type UploadURL struct {
	UploadURL string `json:"upload_url"`
	S3Key     string `json:"s3_key"`
}

// Model is a selectable model variant.
type Model struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Default bool   `json:"default"`
}

func decode[T any](resp *APIResponse) (*T, error) {
	var out T
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

func printSession(s *Session) {
	fmt.Printf("Session:  %s\n", s.ID)
	fmt.Printf("Model:    %s\n", s.ModelLabel)
	fmt.Printf("Turns:    %d\n", s.Turns)
	if s.Document == nil {
		fmt.Println("Document: none")
		return
	}
	fmt.Printf("Document: %s (%d pages, %d chunks)\n", s.Document.Filename, s.Document.Pages, s.Document.Chunks)
}

func printSources(sources []Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for i, s := range sources {
		snippet := []rune(s.Content)
		if len(snippet) > 100 {
			snippet = append(snippet[:97], []rune("...")...)
		}
		fmt.Printf("%d. page %d (%.2f) %s\n", i+1, s.Page, s.Score, string(snippet))
	}
}
