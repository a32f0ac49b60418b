// Package student implements the student records service exposed by
// the companion MCP server: the data model, pluggable storage, and the
// tool handlers that operate on it.
package student

// Address is a student's mailing address.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Student is one student record. IDs are assigned by the store.
type Student struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Age     int     `json:"age"`
	Address Address `json:"address"`
}

// Response is the uniform envelope every tool returns.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
