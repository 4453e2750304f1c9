// Package webhookhook is a SmartQueue extension that POSTs token status
// changes to HTTP endpoints with go-resty, retrying server errors.
package webhookhook
