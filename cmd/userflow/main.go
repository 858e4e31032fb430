// Command userflow runs the user_processing and group_dag workflows, either
// once from the command line or on their cron schedules behind a small
// status API.
package main

import "os"

func main() {
	os.Exit(execute())
}
