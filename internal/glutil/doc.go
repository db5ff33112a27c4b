// Package glutil holds the GPU resource abstractions shared by the frame
// processing pipeline.
//
// Every GPU object is referenced by an integer id handed out by an
// [ObjectsProvider]. Components never interpret ids; they pass them back to
// the provider to read, write or delete the object. [TextureInfo] bundles
// the ids describing one renderable texture and owns their release.
//
// [SoftwareProvider] backs textures with in-memory RGBA images so the
// pipeline runs without a GPU context, which is what the tests, the
// simulate command and the demo server use.
package glutil
