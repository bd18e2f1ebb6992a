// Package cli implements the promptgraph command line.
//
// Commands read a flow either from a JSON file (the canvas export format,
// a promptgraph.FlowRecord) or by ID from the configured flow store:
//
//	promptgraph plan FLOW                  print the execution plan
//	promptgraph select FLOW NODE           print the nodes a partial run would execute
//	promptgraph run FLOW [--from NODE]     execute a flow
//	promptgraph schedule FLOW --cron EXPR  execute a flow on a cron schedule
//	promptgraph flow list|show|import|export|delete
//
// Output is a table by default and JSON with --json.
package cli
