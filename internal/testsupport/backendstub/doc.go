// Package backendstub hosts an in-process fake of the camera backend REST API for tests.
// It keeps cameras and detection state in memory, records the Authorization header of
// every call, and can be told to revoke tokens or to fail specific endpoints.
package backendstub
