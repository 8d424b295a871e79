// Package lib provides a Go SDK for converting natural language infrastructure
// descriptions into infrastructure as code programmatically.
//
// This package allows applications to create and drive infraware jobs without
// shelling out to the infraware CLI or calling its HTTP API. It is useful for
// scripting, automation, and embedding the job orchestration in other services.
//
// # Quick Start
//
// Create a client, create a job, review its diagrams and confirm them:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	job, err := client.CreateJob(ctx, lib.CreateJobOpts{
//	    Prompt:      "Create a VPC with a public subnet and a web server",
//	    Provider:    lib.ProviderAWS,
//	    ProjectName: "demo-project",
//	})
//
//	// Wait for the spec and the diagrams.
//	job, _ = client.WaitJob(ctx, job.ID, nil)
//	diagrams, _ := client.Diagrams(ctx, job.ID)
//
//	// Confirm (or reject with client.RejectJob) and wait for the code.
//	client.ConfirmJob(ctx, job.ID)
//	job, _ = client.WaitJob(ctx, job.ID, nil)
//	final, _ := client.FinalArtifacts(ctx, job.ID)
//	readme, _ := client.ReadArtifact(ctx, final.DocumentationURL)
//
// # Job Lifecycle
//
// A job goes through two stages separated by a user decision:
//
//	pending -> stage1_running -> awaiting_confirmation -> stage2_running -> completed
//
// The first stage generates the infrastructure spec and the architecture
// diagrams, the second stage the code and the documentation. Any stage can
// fail, and a rejected job fails with the "rejected" error. The stages run in
// background workers owned by the [Client].
//
// # Backends
//
// The SDK composes three pluggable parts:
//
//   - Ledger: where the jobs are stored. [LedgerSQLite] (default), [LedgerPostgres]
//     to share the jobs between processes, or [LedgerMemory] for tests.
//   - Artifact store: where the generated files are stored. [ArtifactStoreFS]
//     (default) or [ArtifactStoreMemory].
//   - Engine: what generates the files. [EngineLocal] (default) renders them from
//     built-in templates, [EngineRemote] calls an HTTP generation service.
//
// # HTTP API
//
// [Client.HTTPHandler] returns the HTTP API of the client jobs, ready to be
// served with [net/http]:
//
//	h, _ := client.HTTPHandler("v1.0.0")
//	http.ListenAndServe(":8080", h)
//
// # Recovery
//
// Jobs whose process died can be picked up by another client sharing the
// ledger and the artifact store with [Client.Recover]: pending jobs are started
// and stalled running jobs are failed. A stage is never resumed halfway.
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Job or artifact does not exist.
//   - [ErrNotValid]: Invalid input (e.g. a too short prompt).
//   - [ErrPreconditionFailed]: The job is not in the required status (e.g. confirming twice).
//   - [ErrLedgerUnavailable], [ErrStoreFailure], [ErrEngineFailure]: Infrastructure failures.
//
// # Testing
//
// Use the memory backends to write tests without touching the disk:
//
//	client, _ := lib.New(ctx, lib.Config{
//	    Ledger:        lib.LedgerMemory,
//	    ArtifactStore: lib.ArtifactStoreMemory,
//	})
//	defer client.Close()
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines. Job status
// changes use the ledger compare and update, so many clients can share a ledger.
package lib
