// Package crawler defines the domain types, collaborator interfaces, errors
// and URL helpers shared by the story crawling pipeline: fetcher, source
// adapters, pagination walker, identity resolver, chapter reconciler, upsert
// writer and batch orchestrator.
package crawler
