package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	ShuttingDown       string
	ShutdownComplete   string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	StateLoadFailed    string
	APIServerError     string
	DevJWTSecret       string

	// Credentials
	KeyringLoaded   string
	KeyringDisabled string
	KeyringFailed   string

	// Strategy
	StrategyConfigLoaded     string
	StrategyConfigLoadFailed string
	IndicatorModeFailed      string
	PlaceholderIndicators    string

	// Services
	SystemMetricsInit  string
	EngineServiceInit  string
	GatewayPoolStarted string
	MonitorStarted     string
	PriceFeedStarted   string
	MockTraderStarted  string
	MockAutostart      string
	SessionsStopped    string
	HistoryFlushed     string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting trading bot...",
	ConfigLoaded:       "Config loaded (Port: %s)",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Server listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	ShutdownComplete:   "Shutdown complete",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	StateLoadFailed:    "Failed to load state: %v",
	APIServerError:     "API server error: %v",
	DevJWTSecret:       "JWT_SECRET not set, using the development secret",

	// Credentials
	KeyringLoaded:   "Exchange credentials encrypted at rest (key v%d)",
	KeyringDisabled: "MASTER_ENCRYPTION_KEY not set, exchange credentials are stored unencrypted",
	KeyringFailed:   "Failed to load encryption keys: %v",

	// Strategy
	StrategyConfigLoaded:     "Strategy config loaded from %s (active: %s)",
	StrategyConfigLoadFailed: "Failed to load %s, using defaults: %v",
	IndicatorModeFailed:      "Invalid INDICATOR_MODE: %v",
	PlaceholderIndicators:    "WARNING: placeholder indicators enabled, RSI and momentum are random and signals carry no market information",

	// Services
	SystemMetricsInit:  "System metrics initialized",
	EngineServiceInit:  "Engine service initialized",
	GatewayPoolStarted: "Connector pool started (max %d, idle timeout %s)",
	MonitorStarted:     "Risk monitor started",
	PriceFeedStarted:   "Price feed started for %v (every %s)",
	MockTraderStarted:  "Mock trader ready for %s (every %s)",
	MockAutostart:      "Mock trading enabled at startup",
	SessionsStopped:    "All trading sessions stopped",
	HistoryFlushed:     "Trade history flushed",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "啟動交易機器人...",
	ConfigLoaded:       "設定已載入（埠號：%s）",
	UsingDBPath:        "使用資料庫路徑：%s",
	ServerListening:    "服務監聽於 :%s",
	ShuttingDown:       "正在優雅關閉...",
	ShutdownComplete:   "已完成關閉",
	ConfigLoadFailed:   "讀取設定失敗：%v",
	DBInitFailed:       "初始化資料庫失敗：%v",
	DBMigrationsFailed: "套用資料庫遷移失敗：%v",
	StateLoadFailed:    "載入狀態失敗：%v",
	APIServerError:     "API 伺服器錯誤：%v",
	DevJWTSecret:       "未設定 JWT_SECRET，使用開發用密鑰",

	// Credentials
	KeyringLoaded:   "交易所憑證已加密儲存（金鑰 v%d）",
	KeyringDisabled: "未設定 MASTER_ENCRYPTION_KEY，交易所憑證未加密儲存",
	KeyringFailed:   "載入加密金鑰失敗：%v",

	// Strategy
	StrategyConfigLoaded:     "策略設定已從 %s 載入（啟用：%s）",
	StrategyConfigLoadFailed: "讀取 %s 失敗，使用預設值：%v",
	IndicatorModeFailed:      "INDICATOR_MODE 無效：%v",
	PlaceholderIndicators:    "警告：已啟用佔位指標，RSI 與動能為隨機值，訊號不含任何市場資訊",

	// Services
	SystemMetricsInit:  "系統指標初始化完成",
	EngineServiceInit:  "引擎服務初始化完成",
	GatewayPoolStarted: "連線池已啟動（上限 %d，閒置逾時 %s）",
	MonitorStarted:     "風控監控已啟動",
	PriceFeedStarted:   "行情輪詢已啟動：%v（每 %s）",
	MockTraderStarted:  "模擬交易已就緒：%s（每 %s）",
	MockAutostart:      "啟動時即開啟模擬交易",
	SessionsStopped:    "所有交易會話已停止",
	HistoryFlushed:     "交易紀錄已寫入",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
