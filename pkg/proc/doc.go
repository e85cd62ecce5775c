// Package proc reads the memory of a target process from the outside.
//
// Reads go through a View, which fetches whole pages and keeps the most
// recently used ones in a PageCache. The target is never stopped, so a
// View observes the target as it was when each page was first fetched
// until ClearCache is called.
package proc
