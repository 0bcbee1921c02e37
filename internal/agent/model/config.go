package model

// ================ Config ================
type ConversationConfig struct {
	TTL        string `envconfig:"CONVERSATION_TTL" default:"24h"`
	Classifier struct {
		HistoryWindow int `envconfig:"CONVERSATION_CLASSIFIER_HISTORY_WINDOW" default:"4"`
		CharBudget    int `envconfig:"CONVERSATION_CLASSIFIER_CHAR_BUDGET" default:"100"`
	}
}

type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"16"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0.0"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2048"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.1"`
}

type KnowledgeConfig struct {
	Collection   string `envconfig:"KNOWLEDGE_COLLECTION" default:"faq_knowledge"`
	TopK         int    `envconfig:"KNOWLEDGE_TOP_K" default:"3"`
	EmbedModel   string `envconfig:"KNOWLEDGE_EMBED_MODEL" default:"gemini-embedding-001"`
	ChunkSize    int    `envconfig:"KNOWLEDGE_CHUNK_SIZE" default:"1000"`
	ChunkOverlap int    `envconfig:"KNOWLEDGE_CHUNK_OVERLAP" default:"200"`
	DataDir      string `envconfig:"KNOWLEDGE_DATA_DIR" default:"data/knowledge"`
}

type HistoryConfig struct {
	Path string `envconfig:"HISTORY_DB_PATH" default:"data/history.db"`
}

type ServerConfig struct {
	Port              int     `envconfig:"SERVER_PORT" default:"8001"`
	RequestsPerMinute float64 `envconfig:"SERVER_REQUESTS_PER_MINUTE" default:"50"`
	Burst             int     `envconfig:"SERVER_RATE_BURST" default:"10"`
	AllowAllOrigins   bool    `envconfig:"SERVER_ALLOW_ALL_ORIGINS" default:"false"`
}
