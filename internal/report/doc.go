// Package report renders the monthly initiative tracker for a financial year
// (April to March) as CSV, HTML or Markdown.
package report
