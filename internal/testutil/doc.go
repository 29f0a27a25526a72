// Package testutil holds model fixtures shared by package tests.
package testutil
