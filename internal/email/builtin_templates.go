package email

const (
	TemplateWelcome       = "welcome"
	TemplateTrialWarning  = "trial_warning"
	TemplateTrialExpired  = "trial_expired"
	TemplatePaymentFailed = "payment_failed"
	TemplateCampaign      = "campaign"
)

const layoutHead = `<!DOCTYPE html><html><head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; color: #1f2937; max-width: 600px; margin: 0 auto;">`

const layoutTail = `<p style="color:#6b7280;font-size:12px;">You are receiving this email because you have an account with {{.CompanyName}}.</p></body></html>`

var builtinTemplates = map[string]string{
	TemplateWelcome: layoutHead + `
<h1>Welcome, {{.UserName}}!</h1>
<p>Your {{.TrialDays}}-day free trial has started. Everything in the Starter plan is available right away.</p>
<p><a href="{{.ActionURL}}">Open your dashboard</a></p>
` + layoutTail,

	TemplateTrialWarning: layoutHead + `
<h1>Hi {{.UserName}},</h1>
{{if eq .DaysRemaining 1}}<p><strong>Last chance!</strong> Your trial expires tomorrow.</p>
{{else}}<p>Your trial expires in {{.DaysRemaining}} days.</p>{{end}}
<p>Upgrade now to keep your contacts, pipelines and campaigns running without interruption.</p>
<p><a href="{{.ActionURL}}">Choose a plan</a></p>
` + layoutTail,

	TemplateTrialExpired: layoutHead + `
<h1>Hi {{.UserName}},</h1>
<p>Your free trial has expired. Your data is safe, but access is paused until you pick a plan.</p>
<p><a href="{{.ActionURL}}">Upgrade to continue</a></p>
` + layoutTail,

	TemplatePaymentFailed: layoutHead + `
<h1>Hi {{.UserName}},</h1>
<p>We could not process your latest payment for the {{.Tier}} plan.</p>
<p>Please update your billing details to avoid losing access.</p>
<p><a href="{{.ActionURL}}">Update billing</a></p>
` + layoutTail,

	TemplateCampaign: layoutHead + `
<p>Hi {{.FirstName}},</p>
<div>{{.Content}}</div>
` + layoutTail,
}
