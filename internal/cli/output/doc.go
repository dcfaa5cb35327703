// Package output renders minikv-cli results.
//
// A Formatter writes a value as a table, JSON or YAML. Tables are built from
// structs (one FIELD/VALUE row per exported field), maps (sorted KEY/VALUE
// rows) or slices of structs (one row per element). Progress draws a task
// counter for long-running commands such as load.
package output
