// Package main is the entry point for the command center: the asynchronous
// job-processing and semantic search core behind the CRM.
package main

import "commandcenter/cmd"

func main() {
	cmd.Execute()
}
