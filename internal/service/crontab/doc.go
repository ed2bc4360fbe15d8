// Package crontab renders and installs the scheduled-job registry.
//
// The registry template lives in the checkout and refers to the install
// directory through a placeholder; every install substitutes the resolved
// directory so moved checkouts and changed script paths are picked up.
package crontab
