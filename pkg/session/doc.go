/*
Package session serialises access to orchestration instances.

The Manager pairs a reference-counted in-process mutex per correlation id with an
optional distributed lock, so a single instance never has two threads of control
even across replicas sharing one StateStore.
*/
package session
