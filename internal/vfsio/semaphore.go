package vfsio

// semaphore is a counting semaphore, the Go translation of the four
// POSIX sem_t fields spec.md §3/§4.3 names (sem_ready, sem_data_avail,
// sem_data_need, sem_data_written). spec.md §9 explicitly allows
// substituting channels for the semaphores "provided the external
// observable ordering... is preserved"; a buffered chan struct{} with
// effectively unbounded capacity gives exactly POSIX semantics (post
// never blocks, wait blocks until a post is available, extra posts
// accumulate) without the "may not release more than acquired"
// restriction golang.org/x/sync/semaphore.Weighted imposes — a
// restriction the worker's early-exit and failure paths can violate
// (see DESIGN.md).
type semaphore chan struct{}

// semCapacity is large enough that post never blocks in practice; a
// struct{} channel's buffer costs no memory regardless of size.
const semCapacity = 1 << 20

func newSemaphore() semaphore {
	return make(semaphore, semCapacity)
}

// post signals the semaphore. Never blocks.
func (s semaphore) post() {
	s <- struct{}{}
}

// wait blocks until a post is available, consuming one.
func (s semaphore) wait() {
	<-s
}
