// Package audit records the command and connection history in SQLite.
//
// Every executed device command and every connection state change is
// appended to the command_log and connection_log tables. Writes go through
// a Recorder with a bounded buffer so a slow disk never stalls the device
// session; entries are dropped, and counted, when the buffer is full.
package audit
