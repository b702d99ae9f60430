package api

// CreateThreadRequest is the request body for creating a thread.
type CreateThreadRequest struct {
	Tag     string `json:"tag" example:"billing" validate:"required"`
	Summary string `json:"summary,omitempty" example:"Payment provider integration"`
	ChatURL string `json:"chat_url,omitempty" example:"https://claude.ai/chat/abc"`
}

// AddSnippetRequest is the request body for appending a snippet.
type AddSnippetRequest struct {
	Content string   `json:"content" example:"Chose webhooks over polling" validate:"required"`
	Tags    []string `json:"tags,omitempty" example:"decision,payments"`
	Source  string   `json:"source,omitempty" example:"claude-code"`
	URL     string   `json:"url,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

// AttachFileRequest is the request body for linking a file.
type AttachFileRequest struct {
	Path string `json:"path" example:"/home/me/project/schema.sql" validate:"required"`
}
