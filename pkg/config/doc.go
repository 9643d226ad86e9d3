/*
Package config defines the two external configuration collaborators the
scheduler resolves a Rule's checks against before expansion (spec.md §4.5
step 4, §1 Non-goals): a per-check-type timeout getter, and a user-macro
resolver for the rule's delay field. Both are narrow interfaces — the host
daemon's actual config subsystem and macro-expansion engine are out of
scope — plus a small static implementation of each for standalone running
and tests.
*/
package config
