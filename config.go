package nutrilog

type ModelConfig struct {
	Provider    string  `env:"MODEL_PROVIDER,default=gemini"`
	ModelID     string  `env:"MODEL_ID"`
	PlanModelID string  `env:"PLAN_MODEL_ID"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=4096"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type GeminiConfig struct {
	APIKey string `env:"GEMINI_API_KEY"`
}

type OllamaConfig struct {
	BaseEndpoint string `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
}

type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL"`
}

type StoreConfig struct {
	Driver      string `env:"STORE_DRIVER,default=file"`
	FileDir     string `env:"STORE_FILE_DIR,default=data"`
	S3Bucket    string `env:"STORE_S3_BUCKET"`
	S3Prefix    string `env:"STORE_S3_PREFIX,default=nutrilog/"`
	RedisAddr   string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPass   string `env:"REDIS_PASSWORD"`
	RedisDB     int    `env:"REDIS_DB,default=0"`
	SQLitePath  string `env:"SQLITE_PATH,default=nutrilog.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	MongoURI    string `env:"MONGO_URI,default=mongodb://localhost:27017"`
	MongoDB     string `env:"MONGO_DATABASE,default=nutrilog"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
}

type ShareConfig struct {
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
	SlackChannel    string `env:"SLACK_CHANNEL,default=#nutrition"`
}
