// Package http provides HTTP handlers and middleware for the reminder service.
//
// The router exposes the following endpoints:
//   - POST /reminders/run: runs one dispatch. Body: {"category"}. Requires
//     `Authorization: Bearer <trigger secret>`. Response: the `ReportResponse`
//     defined in reminder_handler.go. Unknown categories yield 400, a bad
//     secret 401, and selection failures 500.
//   - GET /booking/cancel?token=, GET /booking/modify?token=: the emailed
//     links. Render an HTML confirmation form and never consume the token.
//   - POST /booking/cancel, POST /booking/modify: redeem an action token.
//     A JSON body {"token"} gets `redemptionDTO` from action_handler.go; the
//     confirmation form's urlencoded body gets an HTML result page. Expired
//     tokens yield 410, used tokens and forbidden status changes 409.
//   - GET /healthz: pings the booking store.
//   - GET /metrics: Prometheus exposition, when a metrics handler is configured.
//
// Errors share one body shape: {"error_code","message","errors"}.
package http
