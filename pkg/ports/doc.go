/*
Package ports defines the driven ports (interfaces) of the blobrelay engine.

These interfaces decouple the orchestrator from storage backends, transports
and secret providers, so each can be swapped or faked in tests.

# Key Interfaces

  - StateStore: persists orchestration checkpoints keyed by correlation id.
  - DistributedLocker: serialises access to one instance across replicas.
  - ContentFetcher: reads an object's bytes from object storage.
  - Deliverer: writes bytes to the remote SFTP server.
  - SecretStore: resolves key material for the Deliverer.
*/
package ports
