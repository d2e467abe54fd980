// Package debug is categorized trace logging for development builds.
//
// Tracing is compiled in only with -tags debug. SHELF_DEBUG selects the
// categories: a comma separated list such as "NAV,CRUD", or "all", or "none".
package debug

import "strings"

// Category tags a trace line with the component that wrote it.
type Category string

const (
	APP     Category = "APP"     // browser coordination, subscriptions
	NAV     Category = "NAV"     // listing fetches, stale discards
	VIEW    Category = "VIEW"    // derivation, search debounce
	SELECT  Category = "SELECT"  // selection changes
	CRUD    Category = "CRUD"    // optimistic mutations, commit, rollback
	NOTIFY  Category = "NOTIFY"  // notification queue
	PREVIEW Category = "PREVIEW" // preview sessions and loads
	API     Category = "API"     // remote collection requests
	STORE   Category = "STORE"   // favorites and settings
	FS      Category = "FS"      // local backend operations

	FS_WALK Category = "FS_WALK" // verbose: recent and trash walks
)

var allCategories = []Category{APP, NAV, VIEW, SELECT, CRUD, NOTIFY, PREVIEW, API, STORE, FS, FS_WALK}

// parseCategories turns a SHELF_DEBUG value into the enabled set.
// An empty value enables everything except the verbose categories.
func parseCategories(env string) map[Category]bool {
	enabled := make(map[Category]bool, len(allCategories))
	env = strings.ToUpper(strings.TrimSpace(env))
	switch env {
	case "":
		for _, c := range allCategories {
			enabled[c] = c != FS_WALK
		}
	case "ALL":
		for _, c := range allCategories {
			enabled[c] = true
		}
	case "NONE":
	default:
		for _, c := range strings.Split(env, ",") {
			if c = strings.TrimSpace(c); c != "" {
				enabled[Category(c)] = true
			}
		}
	}
	return enabled
}
