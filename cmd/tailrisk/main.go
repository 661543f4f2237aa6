// Tailrisk resolves the options of a tail-risk analysis run against a
// returns dataset.
//
// Usage:
//
//	# Resolve options with individual-mode defaults
//	tailrisk resolve db.xlsx -T AAA BBB
//
//	# Group mode with a rolling window, JSON output
//	tailrisk resolve --format json db.xlsx -G -a rolling 252 1
//
//	# Show the options available in group mode
//	tailrisk resolve db.xlsx -G --help
//
//	# Re-resolve whenever the dataset or schema changes
//	tailrisk watch db.xlsx -a monthly
//
//	# List recorded runs, then show one
//	tailrisk show --state-db runs.db
//	tailrisk show --state-db runs.db --run 5f0c...
package main

func main() {
	Execute()
}
