package api

// Version of the client library, reported in the User-Agent header.
const Version = "0.1.0"
