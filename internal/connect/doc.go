// Package connect drives a single connection attempt across multiple
// candidate routes under one deadline.
//
// ConnectState holds the shared pieces every attempt needs: the outcome
// record table, the transport connector, and the configured timeout. Any
// number of attempts may run concurrently against one ConnectState; they
// hold a read lock while ranking and dialing, and the write lock is taken
// only for the brief in-memory merge of outcome updates afterwards.
package connect
