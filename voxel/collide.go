package voxel

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// PenetrationEpsilon is the minimum penetration depth a contact must
	// exceed before it is reported at all.
	PenetrationEpsilon = 1e-4

	// MaxResolveIterations bounds the multi-contact loop. A corner in 3D
	// has at most three independent constraint planes; four iterations is
	// an empirically sufficient bound, not a proven one.
	MaxResolveIterations = 4

	// MaxContactNormals is the number of constraint planes remembered while
	// resolving simultaneous contacts.
	MaxContactNormals = 3

	// surfaceEpsilonSq separates the sphere-vs-closest-point case from the
	// center-inside-voxel case.
	surfaceEpsilonSq = 1e-12
)

// QuerySphere resolves a sphere at center with the given radius against the
// grid. On collision it writes the accumulated push-out vector to out and
// returns true; out is left untouched otherwise.
func (g *Grid) QuerySphere(center mgl64.Vec3, radius float64, out *mgl64.Vec3) bool {
	return g.resolveContacts(center, 0, radius, out)
}

// QueryCapsule resolves a vertical capsule (segment half-height halfHeight,
// swept by radius) centered at center. Same output contract as QuerySphere.
func (g *Grid) QueryCapsule(center mgl64.Vec3, halfHeight, radius float64, out *mgl64.Vec3) bool {
	return g.resolveContacts(center, halfHeight, radius, out)
}

// resolveContacts runs the single-deepest-penetration resolver repeatedly,
// projecting each new push against previously satisfied constraint planes so
// that multi-surface corners settle instead of oscillating.
func (g *Grid) resolveContacts(center mgl64.Vec3, halfHeight, radius float64, out *mgl64.Vec3) bool {
	pos := center
	var total mgl64.Vec3
	var normals [MaxContactNormals]mgl64.Vec3
	numNormals := 0

	var push mgl64.Vec3
	for iter := 0; iter < MaxResolveIterations; iter++ {
		if !g.deepestPenetration(pos, halfHeight, radius, &push) {
			break
		}

		raw := push
		for i := 0; i < numNormals; i++ {
			// Strip the component that would undo an earlier contact.
			if d := push.Dot(normals[i]); d < 0 {
				push = push.Sub(normals[i].Mul(d))
			}
		}
		if rawLen := raw.Len(); rawLen > PenetrationEpsilon && numNormals < MaxContactNormals {
			normals[numNormals] = raw.Mul(1 / rawLen)
			numNormals++
		}

		pos = pos.Add(push)
		total = total.Add(push)
	}

	// Oscillating partial pushes can sum to float noise; only a significant
	// net displacement counts as a collision.
	if total.Dot(total) <= PenetrationEpsilon*PenetrationEpsilon {
		return false
	}
	*out = total
	return true
}

// deepestPenetration scans every solid voxel in the shape's bounding range
// and reports the single deepest contact. halfHeight 0 degenerates the
// capsule to a sphere. out is written only when a contact above
// PenetrationEpsilon exists.
func (g *Grid) deepestPenetration(center mgl64.Vec3, halfHeight, radius float64, out *mgl64.Vec3) bool {
	if len(g.Nodes) == 0 || g.Resolution <= 0 {
		return false
	}

	inv := 1.0 / g.Resolution
	minIx := int(math.Floor((center.X() - radius - g.GridMin.X()) * inv))
	maxIx := int(math.Floor((center.X() + radius - g.GridMin.X()) * inv))
	minIy := int(math.Floor((center.Y() - radius - halfHeight - g.GridMin.Y()) * inv))
	maxIy := int(math.Floor((center.Y() + radius + halfHeight - g.GridMin.Y()) * inv))
	minIz := int(math.Floor((center.Z() - radius - g.GridMin.Z()) * inv))
	maxIz := int(math.Floor((center.Z() + radius - g.GridMin.Z()) * inv))

	minIx = max(minIx, 0)
	minIy = max(minIy, 0)
	minIz = max(minIz, 0)
	maxIx = min(maxIx, int(g.NumVoxels[0])-1)
	maxIy = min(maxIy, int(g.NumVoxels[1])-1)
	maxIz = min(maxIz, int(g.NumVoxels[2])-1)

	best := PenetrationEpsilon
	found := false
	var bestPush mgl64.Vec3

	for iz := minIz; iz <= maxIz; iz++ {
		for iy := minIy; iy <= maxIy; iy++ {
			for ix := minIx; ix <= maxIx; ix++ {
				if !g.IsVoxelSolid(ix, iy, iz) {
					continue
				}

				voxMin, voxMax := g.VoxelAABB(ix, iy, iz)

				// The shape's defining point against this voxel: the sphere
				// center, or for a capsule the segment point nearest the
				// voxel's Y center (the segment is always vertical, so the
				// projection is Y-only).
				p := center
				if halfHeight > 0 {
					midY := (voxMin.Y() + voxMax.Y()) * 0.5
					p[1] = clamp(midY, center.Y()-halfHeight, center.Y()+halfHeight)
				}

				closest := mgl64.Vec3{
					clamp(p.X(), voxMin.X(), voxMax.X()),
					clamp(p.Y(), voxMin.Y(), voxMax.Y()),
					clamp(p.Z(), voxMin.Z(), voxMax.Z()),
				}

				delta := p.Sub(closest)
				distSq := delta.Dot(delta)

				if distSq > surfaceEpsilonSq {
					dist := math.Sqrt(distSq)
					pen := radius - dist
					if pen > best {
						best = pen
						found = true
						bestPush = delta.Mul(pen / dist)
					}
				} else {
					// Defining point is inside the voxel: escape through the
					// nearest face, radius included.
					escape := math.Inf(1)
					var push mgl64.Vec3
					for axis := 0; axis < 3; axis++ {
						toMin := (p[axis] - voxMin[axis]) + radius
						toMax := (voxMax[axis] - p[axis]) + radius
						if toMin < escape {
							escape = toMin
							push = mgl64.Vec3{}
							push[axis] = -toMin
						}
						if toMax < escape {
							escape = toMax
							push = mgl64.Vec3{}
							push[axis] = toMax
						}
					}
					if escape > best {
						best = escape
						found = true
						bestPush = push
					}
				}
			}
		}
	}

	if found {
		*out = bestPush
	}
	return found
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
