// Package journal records released ticks in SQLite.
//
// Every tick released by a coordinator is written as one row in ticks plus
// one row per delivered message, marker included. Reads are ordered by
// tick_id, then peer, then position within the batch, so a session reads
// back exactly in the order the application consumed it.
//
// The journal implements network.Recorder.
package journal
