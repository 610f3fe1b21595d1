package ai

// Wire types for the Generative Language REST API. Only the fields this
// service touches are mapped.

type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// CachedContent mirrors the remote cachedContents resource.
type CachedContent struct {
	Name              string    `json:"name,omitempty"`
	Model             string    `json:"model"`
	DisplayName       string    `json:"displayName,omitempty"`
	SystemInstruction *Content  `json:"systemInstruction,omitempty"`
	Contents          []Content `json:"contents,omitempty"`
	TTL               string    `json:"ttl,omitempty"`
	CreateTime        string    `json:"createTime,omitempty"`
	UpdateTime        string    `json:"updateTime,omitempty"`
	ExpireTime        string    `json:"expireTime,omitempty"`
}

type cachedContentList struct {
	CachedContents []CachedContent `json:"cachedContents"`
	NextPageToken  string          `json:"nextPageToken,omitempty"`
}

type generateRequest struct {
	Contents      []Content `json:"contents"`
	CachedContent string    `json:"cachedContent,omitempty"`
}

type candidate struct {
	Content Content `json:"content"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type generateResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
