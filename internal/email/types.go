package email

// Attachment представляет вложение в email
type Attachment struct {
	Name        string
	Content     []byte
	ContentType string
}

// Email представляет структуру email сообщения
type Email struct {
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     string
	Subject     string
	Body        string
	HTMLBody    string
	Attachments []Attachment
}

// TemplateData представляет данные для шаблонов писем
type TemplateData map[string]interface{}

// Result - итог отправки. Ошибки провайдера не выходят за пределы адаптера.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func failed(err error) Result {
	return Result{Error: err.Error()}
}
