package email

import "context"

// Provider определяет интерфейс для отправки email
type Provider interface {
	// Enabled - false, если SMTP не настроен. Отправка тогда ничего не делает и возвращает неуспех.
	Enabled() bool

	// Send отправляет email сообщение
	Send(ctx context.Context, email *Email) Result

	// SendTemplate рендерит шаблон и отправляет письмо
	SendTemplate(ctx context.Context, to []string, subject string, templateName string, data TemplateData) Result
}

// TemplateRenderer определяет интерфейс для рендеринга шаблонов
type TemplateRenderer interface {
	// Render рендерит шаблон с данными
	Render(templateName string, data TemplateData) (string, error)

	// AddTemplate добавляет шаблон в рендерер
	AddTemplate(name string, template string) error

	// LoadTemplates загружает шаблоны из директории
	LoadTemplates(dirPath string) error
}
