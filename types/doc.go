// Package types holds small value types shared by the models and the
// repository: JSON string lists, string enums and paging.
package types
