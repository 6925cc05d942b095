// Package dicomscan turns input directories into classified series records.
//
// Every folder under an input directory that holds candidate files is one
// series. The scanner reads the header of one representative file per folder
// (the first one, by name, that parses), counts the folder's files as the
// slice count, and hands the header to the series classifier. Folders are
// read concurrently; the result is always returned in folder order.
package dicomscan
