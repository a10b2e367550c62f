// Package scheduler registers named triggers (cron expressions or fixed
// intervals) and turns each firing into a task on the engine. It never runs
// job code itself.
package scheduler
