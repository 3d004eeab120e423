package contextkeys

// Используем кастомный тип, чтобы избежать коллизий
type contextKey string

// DBContextKey - это ключ, по которому мы будем хранить *gorm.DB в context
const DBContextKey = contextKey("db")

// Ключи gin.Context, которые выставляет AuthMiddleware
const (
	UserIDKey = "userID"
	RoleKey   = "role"
	// UserKey - загруженный *models.User
	UserKey = "user"
	// AccessKey - решение гейта подписки (subscription.AccessDecision)
	AccessKey = "access"
)
