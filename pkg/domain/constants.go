package domain

import "fmt"

// DeliveredMessage is the terminal output of a successful transfer.
func DeliveredMessage(objectID string) string {
	return fmt.Sprintf("Successfully transferred %s to SFTP", objectID)
}
