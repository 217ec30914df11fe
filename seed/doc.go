// Package seed loads the LearnX baseline records: three users, three
// published courses and one enrollment. Loading is find-or-create by natural
// key so it can run any number of times.
package seed
