// @title           CRM API
// @version         1.0
// @description     Multi-tenant CRM: контакты, воронки, коммуникации, кампании, подписки и квоты.
// @host            localhost:8080
// @BasePath        /api/v1

package main

import "crm_backend/internal/app"

func main() {
	app.Run()
}
