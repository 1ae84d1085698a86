/*
Package blobrelay moves a named object from cloud object storage to a remote SFTP server through a durable two-step workflow.

Each transfer is an instance of a small state machine: fetch the object, then deliver it. Every step runs under a bounded retry policy, and the instance is checkpointed before each attempt and after each transition, so a restarted host resumes where it stopped and never repeats a step that already succeeded.

# Concept

The engine is hexagonal. The orchestrator in internal/runtime only talks to ports:

  - ports.ContentFetcher reads the object (Azure Blob Storage, S3-compatible storage, memory).
  - ports.Deliverer writes it (SFTP over SSH, memory).
  - ports.StateStore keeps checkpoints (memory, file, Redis), optionally encrypted at rest.
  - ports.SecretStore resolves the SSH private key (Azure Key Vault, files, environment).

# Errors

Adapters classify failures into a small taxonomy (NotFound, AccessDenied, CredentialError, ConnectionError, RemoteWriteError, Transient). Only ConnectionError and Transient are retried. The final failure is recorded on the instance and is not returned as a Go error.

# Usage

	bucket := memory.NewBucket()
	bucket.Put("report.csv", data)

	eng, err := blobrelay.New(
		blobrelay.WithFetcher(bucket),
		blobrelay.WithDeliverer(memory.NewRemote("/incoming")),
	)
	if err != nil {
		log.Fatal(err)
	}

	out, err := eng.Transfer(ctx, "report.csv")
	// out == "Successfully transferred report.csv to SFTP"

The blobrelay command hosts the same engine behind an HTTP trigger (serve) or runs transfers directly (run).
*/
package blobrelay
