// Package bufmgr manages GPU buffer resources for an OpenGL-style
// front end running on an explicit GPU API.
//
// Each logical buffer owns a suballocation pool and can swap its
// backing handle when the current one is busy on the GPU, instead of
// stalling. Updates pick between a direct CPU write, a staged copy
// through a shared upload pool, and acquiring a fresh handle; maps pick
// from a wider ladder that includes CPU shadow copies, ghosting a busy
// buffer, and round-tripping device-local memory through host-visible
// scratch. Displaced handles are released only after the GPU work that
// references them completes.
//
// The device and device/devicetest packages define and mock the
// allocator and queue the manager drives; backend/wgpu adapts them to a
// WebGPU HAL.
package bufmgr
