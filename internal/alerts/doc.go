// Package alerts implements the rule evaluation engine and webhook delivery
// for sysmind alerting. Rules are evaluated against each published health
// report; webhooks are delivered to Teams, Slack or generic HTTP targets.
package alerts
