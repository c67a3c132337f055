// Package stores persists the operation history of an fx project.
//
// Every top-level operation (provision, deploy, addResource, ...) is recorded
// with its environment, outcome and the plugins it called, and every plugin
// stage call is recorded beneath it. The history lives in a SQLite database
// (modernc.org/sqlite, WAL mode) under the project's .fx directory and its
// schema is managed with golang-migrate from embedded migrations.
package stores
